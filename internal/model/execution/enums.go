package execution

// JobStatus CI 任务状态
type JobStatus string

const (
	JobStatusPending     JobStatus = "PENDING"
	JobStatusRunning     JobStatus = "RUNNING"
	JobStatusDone        JobStatus = "DONE"
	JobStatusUnavailable JobStatus = "UNAVAILABLE"
)

// Result CI 构建结果
type Result string

const (
	ResultAborted  Result = "ABORTED"
	ResultFailure  Result = "FAILURE"
	ResultSuccess  Result = "SUCCESS"
	ResultUnstable Result = "UNSTABLE"
	ResultNotBuilt Result = "NOT_BUILT"
)

// StatusFromResult 结果到任务状态的映射，未知结果视为运行中
func StatusFromResult(result Result) JobStatus {
	switch result {
	case ResultAborted, ResultFailure, ResultSuccess, ResultUnstable:
		return JobStatusDone
	case ResultNotBuilt:
		return JobStatusUnavailable
	default:
		return JobStatusRunning
	}
}

// Acceptance 执行验收状态
type Acceptance string

const (
	AcceptanceNew       Acceptance = "NEW"
	AcceptanceAccepted  Acceptance = "ACCEPTED"
	AcceptanceDiscarded Acceptance = "DISCARDED"
)

// QualityStatus 质量状态，按严重程度从低到高排列
type QualityStatus string

const (
	QualityPassed     QualityStatus = "PASSED"
	QualityWarning    QualityStatus = "WARNING"
	QualityIncomplete QualityStatus = "INCOMPLETE"
	QualityFailed     QualityStatus = "FAILED"
)

// weight 越大越差
func (s QualityStatus) weight() int {
	switch s {
	case QualityPassed:
		return 0
	case QualityWarning:
		return 1
	case QualityIncomplete:
		return 2
	case QualityFailed:
		return 3
	default:
		return 2
	}
}

// Worst 返回两个状态中更差的一个
func (s QualityStatus) Worst(other QualityStatus) QualityStatus {
	if other.weight() > s.weight() {
		return other
	}
	return s
}

// IsAcceptable 质量是否可以接受(PASSED 或 WARNING)
func (s QualityStatus) IsAcceptable() bool {
	return s == QualityPassed || s == QualityWarning
}

// Handling 场景处理状态
type Handling string

const (
	HandlingSuccess   Handling = "SUCCESS"
	HandlingHandled   Handling = "HANDLED"
	HandlingUnhandled Handling = "UNHANDLED"
)
