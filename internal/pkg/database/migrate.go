package database

import (
	execmodel "aramaster/internal/model/execution"
	probmodel "aramaster/internal/model/problem"
	projmodel "aramaster/internal/model/project"

	"gorm.io/gorm"
)

// Models 需要迁移的全部模型，顺序即建表顺序
func Models() []interface{} {
	return []interface{}{
		&projmodel.Project{},
		&projmodel.Country{},
		&projmodel.Source{},
		&projmodel.Type{},
		&projmodel.Severity{},
		&projmodel.CycleDefinition{},
		&projmodel.Team{},
		&projmodel.RootCause{},
		&projmodel.Setting{},
		&execmodel.Execution{},
		&execmodel.CountryDeployment{},
		&execmodel.Run{},
		&execmodel.ExecutedScenario{},
		&execmodel.Error{},
		&probmodel.Problem{},
		&probmodel.ProblemPattern{},
		&probmodel.ProblemOccurrence{},
	}
}

// AutoMigrate 迁移全部模型
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// DropAll 按建表的逆序删除全部表
func DropAll(db *gorm.DB) error {
	models := Models()
	for i := len(models) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(models[i]); err != nil {
			return err
		}
	}
	return nil
}
