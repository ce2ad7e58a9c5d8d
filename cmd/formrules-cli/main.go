package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/goliatone/go-formrules/internal/config"
	"github.com/goliatone/go-formrules/pkg/form"
	"github.com/goliatone/go-formrules/pkg/model"
	"github.com/goliatone/go-formrules/pkg/openapi"
	"github.com/goliatone/go-formrules/pkg/prompt"
)

func main() {
	formPath := flag.String("form", "", "form definition file (YAML or JSON)")
	source := flag.String("openapi", "", "OpenAPI document path or URL")
	opID := flag.String("operation", "", "operation ID (or method:path) in the OpenAPI document")
	list := flag.Bool("list", false, "list the operations of the OpenAPI document and exit")
	format := flag.String("format", "json", "output format: json, form or pretty")
	output := flag.String("output", "", "output file (stdout if empty)")
	attempts := flag.Int("attempts", 0, "maximum attempts per field (0 is unlimited)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *list {
		raw, err := readOpenAPI(ctx, *source, cfg)
		if err != nil {
			log.Fatalf("Failed to read OpenAPI document: %v", err)
		}
		ops, err := openapi.Operations(ctx, raw)
		if err != nil {
			log.Fatalf("Failed to parse OpenAPI document: %v", err)
		}
		for _, op := range ops {
			fmt.Printf("%-30s %-7s %s\n", op.ID, op.Method, op.Path)
		}
		return
	}

	def, err := loadDefinition(ctx, *formPath, *source, *opID, cfg)
	if err != nil {
		log.Fatalf("Failed to load form: %v", err)
	}

	f, err := form.New(def, cfg.FormOptions(def, logger)...)
	if err != nil {
		log.Fatalf("Failed to build form: %v", err)
	}

	filler := prompt.New(
		prompt.WithOutputFormat(prompt.OutputFormat(*format)),
		prompt.WithMaxAttempts(*attempts),
		prompt.WithOutput(os.Stderr),
	)
	out, err := filler.Fill(ctx, f)
	switch {
	case errors.Is(err, prompt.ErrAborted):
		os.Exit(130)
	case errors.Is(err, prompt.ErrInvalid):
		// still write what was collected
	case err != nil:
		log.Fatalf("Failed to fill form: %v", err)
	}

	if *output != "" {
		if werr := os.WriteFile(*output, out, 0o644); werr != nil {
			log.Fatalf("Failed to write output: %v", werr)
		}
		fmt.Fprintf(os.Stderr, "Values written to %s\n", *output)
	} else {
		fmt.Println(string(out))
	}
	if err != nil {
		os.Exit(1)
	}
}

func loadDefinition(ctx context.Context, formPath, source, opID string, cfg config.Config) (model.FormModel, error) {
	if formPath != "" {
		return model.LoadFile(formPath)
	}
	if source == "" || opID == "" {
		return model.FormModel{}, errors.New("either -form or -openapi with -operation is required")
	}
	raw, err := readOpenAPI(ctx, source, cfg)
	if err != nil {
		return model.FormModel{}, err
	}
	return openapi.FormFromDocument(ctx, raw, opID)
}

func readOpenAPI(ctx context.Context, raw string, cfg config.Config) ([]byte, error) {
	path := strings.TrimSpace(raw)
	if path == "" {
		return nil, errors.New("-openapi is required")
	}
	var src openapi.Source
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		var err error
		if src, err = openapi.SourceFromURL(path); err != nil {
			return nil, err
		}
	} else {
		src = openapi.SourceFromFile(path)
	}
	return openapi.Read(ctx, src, cfg.HTTPClient())
}
