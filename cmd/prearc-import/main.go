package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/vuiis/prearc/pkg/prearc"
	"github.com/vuiis/prearc/pkg/prearc/anon"
	"github.com/vuiis/prearc/pkg/prearc/config"
	"github.com/vuiis/prearc/pkg/prearc/internalerr"
	"github.com/vuiis/prearc/pkg/prearc/project"
	"github.com/vuiis/prearc/pkg/prearc/seriesfilter"
	"github.com/vuiis/prearc/pkg/prearc/session/sqlite"
)

func main() {
	var (
		configPath        = flag.String("config", "", "Path to site config YAML (required)")
		projectArg        = flag.String("project", "", "Destination project ID or alias")
		sessionLabel      = flag.String("session", "", "Session label (default: derived from object identity)")
		subject           = flag.String("subject", "", "Subject label (default: derived from object identity)")
		visit             = flag.String("visit", "", "Visit ID")
		source            = flag.String("source", "", "Upload source tag")
		user              = flag.String("user", "", "Uploading user (required)")
		senderID          = flag.String("sender-id", "", "Sender identity for the receive log (default: user)")
		aeTitle           = flag.String("ae-title", "", "Sending application entity title")
		transferSyntax    = flag.String("transfer-syntax", "", "Transfer syntax UID for objects without file meta information")
		preventAnon       = flag.Bool("prevent-anon", false, "Skip the site anonymization script")
		preventAutoCommit = flag.Bool("prevent-auto-commit", false, "Keep the session out of auto-archiving")
		rename            = flag.Bool("rename", false, "Ignore incoming filenames and use identity-derived names")
	)
	flag.Parse()

	if *configPath == "" {
		log.Fatal("--config required")
	}
	if *user == "" {
		log.Fatal("--user required")
	}
	files := flag.Args()
	if len(files) == 0 {
		log.Fatal("no input files")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	store, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open session database: %v", err)
	}
	defer store.Close()

	var filters seriesfilter.Source = seriesfilter.None{}
	if cfg.FilterPath != "" {
		filters = seriesfilter.NewDir(cfg.FilterPath)
	}

	var projects project.Cache
	if cfg.ProjectsPath != "" {
		projects, err = project.LoadTable(cfg.ProjectsPath)
		if err != nil {
			log.Fatalf("load projects: %v", err)
		}
	}

	anonymizer := anon.Disabled()
	anonScript := ""
	if cfg.Anonymization.Enabled {
		if cfg.Anonymization.Command == "" {
			log.Fatal("anonymization enabled but no command configured")
		}
		script, err := os.ReadFile(cfg.Anonymization.ScriptPath)
		if err != nil {
			log.Fatalf("load anonymization script: %v", err)
		}
		anonScript = string(script)
		anonymizer = anon.NewCommand(cfg.Anonymization.Command)
	}

	importer := prearc.New(prearc.Options{
		Sessions:       store,
		Projects:       projects,
		Filters:        filters,
		Anonymizer:     anonymizer,
		PrearchivePath: cfg.PrearchivePath,
		SiteURL:        cfg.SiteURL,
		AnonScript:     anonScript,
		AnonConfigID:   cfg.Anonymization.ConfigID,
	})

	src := *source
	if src == "" {
		src = cfg.DefaultSource
	}

	failed := 0
	for _, path := range files {
		res, err := importOne(ctx, importer, path, prearc.Request{
			Caller:            *user,
			Name:              filepath.Base(path),
			Project:           *projectArg,
			SessionLabel:      *sessionLabel,
			Subject:           *subject,
			Visit:             *visit,
			Source:            src,
			SenderID:          *senderID,
			SenderAETitle:     *aeTitle,
			TransferSyntax:    *transferSyntax,
			PreventAnon:       *preventAnon,
			PreventAutoCommit: *preventAutoCommit,
			Rename:            *rename,
		})
		switch {
		case err != nil:
			failed++
			kind := "server"
			if internalerr.IsClient(err) {
				kind = "client"
			}
			log.Printf("%s: %s error: %v", path, kind, err)
		case res.Filtered:
			log.Printf("%s: excluded by series import filter", path)
		default:
			fmt.Println(res.URL)
		}
	}
	if failed > 0 {
		log.Fatalf("%d of %d objects failed", failed, len(files))
	}
}

func importOne(ctx context.Context, importer *prearc.Importer, path string, req prearc.Request) (prearc.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return prearc.Result{}, err
	}
	defer f.Close()
	return importer.Import(ctx, req, f)
}
