package deploy

import (
	"time"

	"cloud.google.com/go/deploy/apiv1/deploypb"

	"github.com/reillywatson/flakewatch/internal/flaky"
)

// TestType marks records produced from Cloud Deploy verify jobs
const TestType = "cloud-deploy-verify"

// VerifyRun is one execution of a rollout's verify job
type VerifyRun struct {
	Pipeline       string // Delivery pipeline id
	Target         string
	JobRunName     string
	Build          string // Cloud Build resource name of the verify build
	State          deploypb.JobRun_State
	CreateTime     time.Time
	StartTime      time.Time
	EndTime        time.Time
	FailureMessage string
}

// TestID returns the id shared by every verify run of a pipeline target
func (r VerifyRun) TestID() string {
	return r.Pipeline + "/" + r.Target + "/verify"
}

// stateStatus maps terminal job run states to record statuses.
// In-progress and unspecified runs are not outcomes yet.
var stateStatus = map[deploypb.JobRun_State]flaky.Status{
	deploypb.JobRun_SUCCEEDED:  flaky.StatusPassed,
	deploypb.JobRun_FAILED:     flaky.StatusFailed,
	deploypb.JobRun_TERMINATED: flaky.StatusSkipped,
}
