package setting

// 项目级配置键
const (
	ExecutionBasePath         = "execution.indexer.file.executionBasePath"
	CycleDefinitionPath       = "execution.indexer.file.cycleDefinitionPath"
	BuildInformationPath      = "execution.indexer.file.buildInformationPath"
	DeleteAfterIndexingAsDone = "execution.indexer.file.deleteAfterIndexingAsDone"

	PurgeDurationValue = "execution.purge.duration.value"
	PurgeDurationType  = "execution.purge.duration.type"

	DefectIndexer            = "defect.indexer"
	DefectGithubOwner        = "defect.github.owner"
	DefectGithubRepository   = "defect.github.repositoryName"
	DefectGithubToken        = "defect.github.authorizationToken"
	DefectJiraBaseURL        = "defect.jira.baseUrl"
	DefectJiraLogin          = "defect.jira.login"
	DefectJiraToken          = "defect.jira.token"
	CucumberReportPath       = "cucumber.reportPath"
	CucumberStepDefsPath     = "cucumber.stepDefinitionsPath"
	PostmanReportsPath       = "postman.reportsPath"
	KarateReportsPath        = "karate.reportsPath"
	GenericReportsPath       = "generic.reportsPath"
	executionBasePathDefault = "{{project}}/{{branch}}/{{cycle}}"
)

// definition 配置项定义
type definition struct {
	defaultValue string
	secret       bool
	validate     func(value string) error
}

var definitions = map[string]definition{
	ExecutionBasePath:         {defaultValue: executionBasePathDefault},
	CycleDefinitionPath:       {defaultValue: "cycleDefinition.json", validate: notBlank},
	BuildInformationPath:      {defaultValue: "buildInformation.json", validate: notBlank},
	DeleteAfterIndexingAsDone: {defaultValue: "true", validate: isBool},
	PurgeDurationValue:        {validate: isEmptyOrNonNegativeInt},
	PurgeDurationType:         {validate: isEmptyOrPurgeUnit},
	DefectIndexer:             {validate: isDefectIndexer},
	DefectGithubOwner:         {},
	DefectGithubRepository:    {},
	DefectGithubToken:         {secret: true},
	DefectJiraBaseURL:         {},
	DefectJiraLogin:           {},
	DefectJiraToken:           {secret: true},
	CucumberReportPath:        {defaultValue: "report.json", validate: notBlank},
	CucumberStepDefsPath:      {defaultValue: "stepDefinitions.json", validate: notBlank},
	PostmanReportsPath:        {defaultValue: "reports", validate: notBlank},
	KarateReportsPath:         {defaultValue: "reports", validate: notBlank},
	GenericReportsPath:        {defaultValue: "reports", validate: notBlank},
}
