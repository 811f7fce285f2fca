package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	deploy "cloud.google.com/go/deploy/apiv1"
	"cloud.google.com/go/deploy/apiv1/deploypb"
	"cloud.google.com/go/logging"
	"cloud.google.com/go/logging/logadmin"
	"github.com/hashicorp/go-multierror"
	"google.golang.org/api/iterator"
)

// DeployClient wraps Google Cloud Deploy and Cloud Logging operations
type DeployClient struct {
	deployClient  *deploy.CloudDeployClient
	loggingClient *logadmin.Client
	projectID     string
	region        string
}

// NewDeployClient creates a new DeployClient with Application Default Credentials
func NewDeployClient(ctx context.Context, projectID, region string) (*DeployClient, error) {
	deployClient, err := deploy.NewCloudDeployClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create deploy client: %w", err)
	}

	loggingClient, err := logadmin.NewClient(ctx, projectID)
	if err != nil {
		deployClient.Close()
		return nil, fmt.Errorf("failed to create logging client: %w", err)
	}

	return &DeployClient{
		deployClient:  deployClient,
		loggingClient: loggingClient,
		projectID:     projectID,
		region:        region,
	}, nil
}

// Close cleans up the client connections
func (c *DeployClient) Close() error {
	var result *multierror.Error

	if err := c.deployClient.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close deploy client: %w", err))
	}

	if err := c.loggingClient.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close logging client: %w", err))
	}

	return result.ErrorOrNil()
}

func (c *DeployClient) pipelineName(pipeline string) string {
	return fmt.Sprintf("projects/%s/locations/%s/deliveryPipelines/%s", c.projectID, c.region, pipeline)
}

// ListVerifyRuns returns the verify job runs of every rollout of every release of a
// delivery pipeline created at or after since
func (c *DeployClient) ListVerifyRuns(ctx context.Context, pipeline string, since time.Time) ([]VerifyRun, error) {
	var runs []VerifyRun

	releaseIt := c.deployClient.ListReleases(ctx, &deploypb.ListReleasesRequest{
		Parent: c.pipelineName(pipeline),
	})
	for {
		release, err := releaseIt.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list releases for pipeline %s: %w", pipeline, err)
		}

		if release.GetCreateTime().AsTime().Before(since) {
			continue
		}

		releaseRuns, err := c.releaseVerifyRuns(ctx, pipeline, release, since)
		if err != nil {
			return nil, err
		}
		runs = append(runs, releaseRuns...)
	}

	return runs, nil
}

func (c *DeployClient) releaseVerifyRuns(ctx context.Context, pipeline string, release *deploypb.Release, since time.Time) ([]VerifyRun, error) {
	var runs []VerifyRun

	rolloutIt := c.deployClient.ListRollouts(ctx, &deploypb.ListRolloutsRequest{Parent: release.GetName()})
	for {
		rollout, err := rolloutIt.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list rollouts for release %s: %w", release.GetName(), err)
		}

		jobRunIt := c.deployClient.ListJobRuns(ctx, &deploypb.ListJobRunsRequest{Parent: rollout.GetName()})
		for {
			jobRun, err := jobRunIt.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to list job runs for rollout %s: %w", rollout.GetName(), err)
			}

			run, ok := verifyRunFromJobRun(pipeline, rollout.GetTargetId(), jobRun)
			if !ok || run.CreateTime.Before(since) {
				continue
			}
			runs = append(runs, run)
		}
	}

	return runs, nil
}

// verifyRunFromJobRun reports false for job runs that are not verify jobs
func verifyRunFromJobRun(pipeline, target string, jobRun *deploypb.JobRun) (VerifyRun, bool) {
	verify := jobRun.GetVerifyJobRun()
	if verify == nil {
		return VerifyRun{}, false
	}

	run := VerifyRun{
		Pipeline:       pipeline,
		Target:         target,
		JobRunName:     jobRun.GetName(),
		Build:          verify.GetBuild(),
		State:          jobRun.GetState(),
		CreateTime:     jobRun.GetCreateTime().AsTime(),
		FailureMessage: verify.GetFailureMessage(),
	}
	if jobRun.GetStartTime() != nil {
		run.StartTime = jobRun.GetStartTime().AsTime()
	}
	if jobRun.GetEndTime() != nil {
		run.EndTime = jobRun.GetEndTime().AsTime()
	}
	return run, true
}

// FirstErrorLog returns the first ERROR or worse log line of a verify run's build
func (c *DeployClient) FirstErrorLog(ctx context.Context, run VerifyRun) (string, error) {
	filter := errorLogFilter(run)
	if filter == "" {
		return "", nil
	}

	it := c.loggingClient.Entries(ctx,
		logadmin.Filter(filter),
		logadmin.PageSize(1),
	)

	entry, err := it.Next()
	if err == iterator.Done {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error querying logs for %s: %w", run.JobRunName, err)
	}

	return entryText(entry), nil
}

// errorLogFilter builds a Cloud Logging filter for the run's build. Runs without a build
// never started and have no logs.
func errorLogFilter(run VerifyRun) string {
	if run.Build == "" {
		return ""
	}
	buildID := run.Build[strings.LastIndex(run.Build, "/")+1:]

	filter := fmt.Sprintf(`resource.type="build" AND resource.labels.build_id="%s" AND severity>=ERROR`, buildID)
	if !run.StartTime.IsZero() {
		filter += fmt.Sprintf(` AND timestamp>="%s"`, run.StartTime.UTC().Format(time.RFC3339))
	}
	if !run.EndTime.IsZero() {
		filter += fmt.Sprintf(` AND timestamp<="%s"`, run.EndTime.Add(time.Minute).UTC().Format(time.RFC3339))
	}
	return filter
}

func entryText(entry *logging.Entry) string {
	switch payload := entry.Payload.(type) {
	case string:
		return strings.TrimSpace(payload)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(payload))
	}
}
