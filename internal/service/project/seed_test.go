package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	projmodel "aramaster/internal/model/project"
	"aramaster/internal/model/system"
	"aramaster/internal/pkg/database/dbtest"
	projrepo "aramaster/internal/repo/mysql/project"
	"aramaster/internal/service/setting"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
projects:
  - code: shop
    name: Shop
    countries:
      - { code: FR, name: France }
    sources:
      - { code: web, name: Web, technology: CUCUMBER }
    types:
      - { code: firefox, name: Firefox, source: web, browser: true }
    severities:
      - { code: high, position: 1, name: High, default_on_missing: true }
    cycles:
      - { branch: main, name: nightly, branch_position: 1 }
    teams: [Checkout, Platform]
    root_causes: [Regression]
    settings:
      execution.purge.duration.value: "3"
      execution.purge.duration.type: WEEK
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSeedProjects(t *testing.T) {
	db := dbtest.NewDB(t)
	ctx := context.Background()

	file, err := LoadSeedFile(writeSeed(t, seedYAML))
	require.NoError(t, err)

	created, err := SeedProjects(ctx, db, file)
	require.NoError(t, err)
	assert.Equal(t, []string{"shop"}, created)

	svc := NewProjectService(projrepo.NewProjectRepository(db))
	p, err := svc.GetByCode(ctx, "shop")
	require.NoError(t, err)

	ref, err := svc.LoadReferenceData(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, ref.CountryByCode("fr"))
	firefox := ref.TypeByCode("firefox")
	require.NotNil(t, firefox)
	require.NotNil(t, firefox.Source)
	assert.Equal(t, projmodel.TechnologyCucumber, firefox.Source.Technology)

	var teams []projmodel.Team
	require.NoError(t, db.Order("name").Find(&teams).Error)
	require.Len(t, teams, 2)
	assert.Equal(t, "Checkout", teams[0].Name)

	settings, err := setting.NewSettingService(projrepo.NewProjectRepository(db)).Load(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "WEEK", settings.Get(setting.PurgeDurationType))

	// 第二次运行跳过已存在的项目
	created, err = SeedProjects(ctx, db, file)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestSeedProjects_InvalidSettingRollsBack(t *testing.T) {
	db := dbtest.NewDB(t)
	file := &SeedFile{Projects: []SeedProject{{
		Code:     "broken",
		Settings: map[string]string{setting.PurgeDurationType: "FORTNIGHT"},
	}}}

	_, err := SeedProjects(context.Background(), db, file)
	require.ErrorIs(t, err, system.ErrInvalidSettingValue)

	var n int64
	require.NoError(t, db.Model(&projmodel.Project{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestLoadSeedFile_UnknownField(t *testing.T) {
	_, err := LoadSeedFile(writeSeed(t, "projects:\n  - code: x\n    colour: red\n"))
	assert.Error(t, err)
}
