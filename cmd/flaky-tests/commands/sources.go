package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/reillywatson/flakewatch/internal/cache"
	"github.com/reillywatson/flakewatch/internal/circleci"
	"github.com/reillywatson/flakewatch/internal/config"
	"github.com/reillywatson/flakewatch/internal/deploy"
	"github.com/reillywatson/flakewatch/internal/flaky"
	"github.com/reillywatson/flakewatch/internal/github"
	"github.com/reillywatson/flakewatch/internal/influx"
)

// history is a loader plus whatever must be closed after using it
type history struct {
	loader  flaky.HistoryLoader
	closers []func() error
}

func (h *history) Close() error {
	var result *multierror.Error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// openHistory builds the loader for source, wrapped in the configured cache
func (a *app) openHistory(ctx context.Context, source string) (*history, error) {
	h := &history{}

	switch source {
	case config.SourceStore:
		s, err := a.openStore()
		if err != nil {
			return nil, err
		}
		h.loader = s
		h.closers = append(h.closers, s.Close)

	case config.SourceGitHub:
		client := github.NewGitHubClient(a.cfg.GitHub.Token)
		if a.cfg.GitHub.BaseURL != "" {
			var err error
			client, err = github.NewGitHubClientWithBaseURL(a.cfg.GitHub.Token, a.cfg.GitHub.BaseURL)
			if err != nil {
				return nil, err
			}
		}
		if a.cfg.GitHub.Token == "" {
			a.log.Warn().Msg("GITHUB_TOKEN is not set; requests are unauthenticated and heavily rate limited")
		}
		h.loader = github.NewLoader(client, a.cfg.GitHub.Owner, a.log)

	case config.SourceDeploy:
		if a.cfg.Deploy.GCPProject == "" || a.cfg.Deploy.Region == "" {
			return nil, errors.New("deploy.gcp_project and deploy.region must be configured for the deploy source")
		}
		client, err := deploy.NewDeployClient(ctx, a.cfg.Deploy.GCPProject, a.cfg.Deploy.Region)
		if err != nil {
			return nil, err
		}
		h.loader = deploy.NewLoader(client, a.log)
		h.closers = append(h.closers, client.Close)

	case config.SourceInflux:
		loader, err := influx.NewLoader(a.cfg.InfluxClientConfig(), a.log)
		if err != nil {
			return nil, err
		}
		h.loader = loader
		h.closers = append(h.closers, func() error {
			loader.Close()
			return nil
		})

	case config.SourceCircle:
		client := circleci.NewCircleCIClient(a.cfg.CircleCI.Token)
		if a.cfg.CircleCI.BaseURL != "" {
			client = circleci.NewCircleCIClientWithBaseURL(a.cfg.CircleCI.Token, a.cfg.CircleCI.BaseURL)
		}
		if a.cfg.CircleCI.Token == "" {
			a.log.Warn().Msg("CIRCLECI_TOKEN is not set; only public projects can be read")
		}
		h.loader = circleci.NewLoader(client, a.log)
		h.closers = append(h.closers, client.Close)

	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}

	if a.cfg.Cache.Backend == cache.BackendNone {
		return h, nil
	}

	c, err := cache.New(a.cfg.Cache.Backend, a.cfg.Cache.Dir, a.cfg.Cache.MemoryEntries)
	if err != nil {
		closeErr := h.Close()
		return nil, multierror.Append(err, closeErr).ErrorOrNil()
	}
	h.loader = flaky.NewCachedLoader(h.loader, c, source, a.cfg.Cache.TTL, a.log)
	h.closers = append(h.closers, c.Close)
	return h, nil
}
