// Command fill answers a form from a YAML or JSON values file and submits it
// through a cerium server. Progress is kept in a local SQLite draft store, so
// an interrupted run resumes where it stopped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/pulsejet/cerium-engine/client"
	"github.com/pulsejet/cerium-engine/config"
	"github.com/pulsejet/cerium-engine/kvstore"
	"github.com/pulsejet/cerium-engine/models"
	"github.com/pulsejet/cerium-engine/upload"
	"github.com/pulsejet/cerium-engine/workflow"
)

func main() {
	cfg := config.LoadCLI()
	config.Setup(cfg.LogLevel)

	formID := flag.String("form", "", "form id or slug")
	valuesPath := flag.String("values", "", "YAML or JSON file mapping field ids to values")
	user := flag.String("user", "", "log in as this user before filling")
	draftOnly := flag.Bool("draft", false, "save a draft instead of submitting")
	flag.Parse()

	if *formID == "" {
		fmt.Fprintln(os.Stderr, "usage: fill -form <id|slug> [-values file] [-user id] [-draft]")
		os.Exit(2)
	}

	if err := run(context.Background(), cfg, *formID, *valuesPath, *user, *draftOnly); err != nil {
		log.WithError(err).Error("fill failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.CLI, formID, valuesPath, user string, draftOnly bool) error {
	values, err := readValues(valuesPath)
	if err != nil {
		return err
	}

	drafts, err := kvstore.OpenSQLite(cfg.DraftDB)
	if err != nil {
		return err
	}
	defer drafts.Close()

	api := client.New(cfg.URL, nil)
	if user != "" {
		if err := api.Login(ctx, user); err != nil {
			return fmt.Errorf("logging in: %w", err)
		}
	}

	s, err := workflow.Open(ctx, workflow.Deps{
		Schema:   api,
		Uploader: api,
		Records:  api,
		Store:    drafts,
		Identity: api,
	}, formID)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := s.SetValue(id, values[id]); err != nil {
			return err
		}
	}

	if draftOnly {
		id, err := s.SaveDraft(ctx)
		if err != nil {
			return report(err)
		}
		fmt.Printf("draft saved: %s\n", id)
		return nil
	}

	for !s.IsLastPage() {
		if err := s.Next(); err != nil {
			return report(err)
		}
	}

	out, err := s.Submit(ctx)
	if err != nil {
		return report(err)
	}
	fmt.Printf("submitted: %s\n", out.SubmissionID)
	if out.HasFollowUps {
		fmt.Printf("follow-up tasks: %v\n", out.FollowUpTaskIDs)
	}
	return nil
}

// readValues decodes a values file. YAML is a superset of JSON, so one
// decoder handles both.
func readValues(path string) (models.Values, error) {
	values := models.Values{}
	if path == "" {
		return values, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return values, nil
}

// report prints per-field problems before returning err.
func report(err error) error {
	var ve *workflow.ValidationError
	var be *upload.BatchError
	switch {
	case errors.As(err, &ve):
		fmt.Fprintf(os.Stderr, "page %d:\n", ve.Page+1)
		printFields(ve.Fields)
	case errors.As(err, &be):
		printFields(be.Fields)
	}
	return err
}

func printFields(errs map[string]string) {
	ids := make([]string, 0, len(errs))
	for id := range errs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", id, errs[id])
	}
}
