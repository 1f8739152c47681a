/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"sigs.k8s.io/yaml"

	"github.com/confops/rostrum/pkg/apis/wire"
	"github.com/confops/rostrum/pkg/assign"
	"github.com/confops/rostrum/pkg/fetch"
	"github.com/confops/rostrum/pkg/frames"
	"github.com/confops/rostrum/pkg/operator/options"
	"github.com/confops/rostrum/pkg/schedule"
	"github.com/confops/rostrum/pkg/upstream"
	"github.com/confops/rostrum/pkg/utils/log"
)

const usage = `usage: rostrum <assign|schedule> [flags]

assign    distribute proposals under review to the reviewer pool
schedule  lay out accepted talks across the slot grid
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]
	opts := options.MustParse(os.Args[2:]...)
	log.Setup(opts.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := buildClient(opts)
	if err != nil {
		log.FromContext(ctx).Fatalw("building upstream client", "error", err)
	}

	switch command {
	case "assign":
		err = runAssign(ctx, opts, client)
	case "schedule":
		err = runSchedule(ctx, opts, client)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.FromContext(ctx).Fatalw("run failed", "command", command, "error", err)
	}
}

func buildClient(opts *options.Options) (*upstream.Client, error) {
	fetcher, err := fetch.New(opts.BaseURL, opts.Token,
		fetch.WithVersion(opts.APIVersion),
		fetch.WithTimeout(opts.RequestTimeout),
		fetch.WithRateLimit(rate.Limit(opts.RateLimit), opts.Burst),
	)
	if err != nil {
		return nil, err
	}
	var clientOpts []upstream.Option
	if opts.Lenient {
		clientOpts = append(clientOpts, upstream.WithLenient())
	}
	client := upstream.NewClient(fetcher, clientOpts...)
	client.Store().SetPrepopulation(opts.Prepopulate)
	return client, nil
}

func runAssign(ctx context.Context, opts *options.Options, client *upstream.Client) error {
	if opts.Event == "" {
		return fmt.Errorf("assign requires --event")
	}
	if opts.Reviewers == "" {
		return fmt.Errorf("assign requires --reviewers")
	}
	reviewers, err := loadReviewers(opts.Reviewers)
	if err != nil {
		return err
	}
	aliases := map[string]string{}
	if opts.TrackAliases != "" {
		if aliases, err = assign.LoadAliases(opts.TrackAliases); err != nil {
			return err
		}
	}

	var submissions []wire.Submission
	var reviews []wire.Review
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, cursor, err := client.Submissions(gctx, opts.Event, url.Values{"state": []string{string(wire.StateSubmitted)}})
		if err != nil {
			return err
		}
		submissions, err = cursor.Materialize(gctx)
		return err
	})
	g.Go(func() error {
		_, cursor, err := client.Reviews(gctx, opts.Event, nil)
		if err != nil {
			return err
		}
		reviews, err = cursor.Materialize(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	completed := lo.CountValuesBy(frames.Scored(frames.FromReviews(reviews)), func(r frames.ReviewRow) string { return r.Proposal })
	proposals := lo.Map(frames.FromSubmissions(submissions), func(row frames.ProposalRow, _ int) assign.Proposal {
		return assign.Proposal{
			Code:             row.Code,
			Track:            row.Track,
			CompletedReviews: completed[row.Code],
		}
	})

	result, err := assign.Assign(ctx, proposals, reviewers,
		assign.WithBuffer(opts.Buffer), assign.WithAliases(aliases))
	if err != nil {
		return err
	}
	path, err := assign.Save(opts.OutputDir, result, time.Now())
	if err != nil {
		return err
	}
	log.FromContext(ctx).Infow("wrote assignment document", "path", path,
		"proposals", len(proposals), "reviewers", len(reviewers))
	if opts.Upload {
		if err := client.UploadAssignments(ctx, opts.Event, result); err != nil {
			return err
		}
		log.FromContext(ctx).Infow("uploaded assignment document", "event", opts.Event)
	}
	return nil
}

func runSchedule(ctx context.Context, opts *options.Options, client *upstream.Client) error {
	if opts.Event == "" {
		return fmt.Errorf("schedule requires --event")
	}
	if opts.GridFile == "" {
		return fmt.Errorf("schedule requires --grid")
	}
	grid, prefs, err := loadGrid(opts.GridFile)
	if err != nil {
		return err
	}

	_, cursor, err := client.Talks(ctx, opts.Event, nil)
	if err != nil {
		return err
	}
	talks, err := cursor.Materialize(ctx)
	if err != nil {
		return err
	}

	rows := frames.FromSubmissions(talks)
	instance := schedule.Instance{
		Talks: lo.Map(rows, func(row frames.ProposalRow, _ int) schedule.Talk {
			return schedule.Talk{
				Code:      row.Code,
				Duration:  row.Duration,
				MainTrack: row.MainTrack,
				SubTrack:  row.SubTrack,
				Sponsored: isSponsored(row.SubmissionType),
			}
		}),
		Grid:  grid,
		Prefs: prefs,
	}

	solver := schedule.NewSolver(opts.SolverBinary,
		schedule.WithTimeLimit(opts.SolverTimeLimit),
		schedule.WithWorkDir(opts.OutputDir),
	)
	timetable, err := schedule.NewRun(solver).Execute(ctx, instance)
	if err != nil {
		return err
	}

	path, err := saveTimetable(opts.OutputDir, timetable)
	if err != nil {
		return err
	}
	log.FromContext(ctx).Infow("wrote timetable", "path", path, "talks", len(timetable))
	return nil
}

func loadReviewers(path string) ([]assign.Reviewer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading reviewer pool, %w", err)
	}
	var reviewers []assign.Reviewer
	if err := yaml.UnmarshalStrict(raw, &reviewers); err != nil {
		return nil, fmt.Errorf("parsing reviewer pool, %w", err)
	}
	return reviewers, nil
}

// gridFile is the YAML shape of the slot grid: per-day, per-session lists of slot
// lengths per room, plus sparse slot preferences keyed by talk code.
type gridFile struct {
	Rooms []schedule.Room `json:"rooms"`
	// Days[d][s][l][r] is the slot length in minutes, zero for a missing slot.
	Days  [][][][]int `json:"days"`
	Prefs []struct {
		Talk     int `json:"talk"`
		Day      int `json:"day"`
		Session  int `json:"session"`
		Position int `json:"position"`
		Room     int `json:"room"`
		Value    int `json:"value"`
	} `json:"prefs"`
}

func loadGrid(path string) (schedule.Grid, map[schedule.PrefKey]int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return schedule.Grid{}, nil, fmt.Errorf("reading grid definition, %w", err)
	}
	var file gridFile
	if err := yaml.UnmarshalStrict(raw, &file); err != nil {
		return schedule.Grid{}, nil, fmt.Errorf("parsing grid definition, %w", err)
	}
	grid := schedule.Grid{
		Days:    len(file.Days),
		Rooms:   file.Rooms,
		Lengths: file.Days,
	}
	for _, day := range file.Days {
		grid.Sessions = max(grid.Sessions, len(day))
		for _, session := range day {
			grid.Positions = max(grid.Positions, len(session))
		}
	}
	prefs := map[schedule.PrefKey]int{}
	for _, p := range file.Prefs {
		prefs[schedule.PrefKey{Talk: p.Talk, Day: p.Day, Session: p.Session, Position: p.Position, Room: p.Room}] = p.Value
	}
	return grid, prefs, nil
}

func saveTimetable(dir string, timetable schedule.Timetable) (string, error) {
	raw, err := yaml.Marshal(timetable)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("timetable_%s.yaml", time.Now().Format("20060102")))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("writing timetable, %w", err)
	}
	return path, nil
}

func isSponsored(submissionType string) bool {
	return lo.Contains([]string{"Sponsored Talk", "Sponsored"}, submissionType)
}
