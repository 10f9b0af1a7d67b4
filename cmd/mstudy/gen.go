package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xxxsen/mstudy/internal/config"
	"github.com/xxxsen/mstudy/internal/filestore"
	"github.com/xxxsen/mstudy/internal/model"
	appErr "github.com/xxxsen/mstudy/internal/pkg/errors"
	"github.com/xxxsen/mstudy/internal/service"
)

const cliUser = "cli"

type genOptions struct {
	configPath string
	file       string
	kind       string
	question   string
	count      int
	offline    bool
}

func newGenCmd() *cobra.Command {
	opts := &genOptions{}
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "generate study material for a local text or markdown file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runGen(ctx, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to config.json, providers are read from it")
	cmd.Flags().StringVar(&opts.file, "file", "", "document to study")
	cmd.Flags().StringVar(&opts.kind, "kind", string(model.KindSummary), "summary, qa-answer, exam or flashcards")
	cmd.Flags().StringVar(&opts.question, "question", "", "question for qa-answer")
	cmd.Flags().IntVar(&opts.count, "count", 10, "number of exam questions or flashcards")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "skip ai providers")
	return cmd
}

func runGen(ctx context.Context, opts *genOptions, out io.Writer) error {
	if opts.file == "" {
		return fmt.Errorf("--file is required")
	}
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = loadConfig(opts.configPath)
	} else {
		cfg, err = config.Parse([]byte(`{}`))
	}
	if err != nil {
		return err
	}
	gen, err := buildGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	study := service.NewStudyService(&fileSource{path: opts.file}, gen, nil, nil, studyConfig(cfg))

	fileID := filepath.Base(opts.file)
	svcOpts := service.Options{Offline: opts.offline}
	var result interface{}
	switch model.Kind(strings.ToLower(opts.kind)) {
	case model.KindSummary:
		result, err = study.Summarize(ctx, cliUser, fileID, svcOpts)
	case model.KindAnswer, "answer":
		result, err = study.Answer(ctx, cliUser, fileID, opts.question, svcOpts)
	case model.KindExam:
		result, err = study.GenerateExam(ctx, cliUser, fileID, opts.count, svcOpts)
	case model.KindFlashcards:
		result, err = study.GenerateFlashcards(ctx, cliUser, fileID, opts.count, svcOpts)
	default:
		return fmt.Errorf("unknown kind %q", opts.kind)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// fileSource serves a single file from disk under its base name.
type fileSource struct {
	path string
}

func (f *fileSource) Load(ctx context.Context, userID, fileID string) (*model.Document, error) {
	if fileID != filepath.Base(f.path) {
		return nil, appErr.ErrNotFound
	}
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &model.Document{
		ID:      fileID,
		UserID:  userID,
		Title:   strings.TrimSuffix(fileID, filepath.Ext(fileID)),
		Content: string(raw),
		Format:  filestore.FormatOf(fileID),
	}, nil
}
