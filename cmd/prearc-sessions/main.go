package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/vuiis/prearc/pkg/prearc/config"
	"github.com/vuiis/prearc/pkg/prearc/session"
	"github.com/vuiis/prearc/pkg/prearc/session/sqlite"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to site config YAML (required)")
		projectArg = flag.String("project", "", "Only list sessions for this project")
		statusArg  = flag.String("status", "", "Only list sessions with this status")
	)
	flag.Parse()

	if *configPath == "" {
		log.Fatal("--config required")
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

	sessions, err := store.List(ctx)
	if err != nil {
		log.Fatalf("list sessions: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROJECT\tSESSION\tTIMESTAMP\tSTATUS\tSCAN DATE\tLAST BUILT\tSOURCE")
	n := 0
	for _, s := range sessions {
		if *projectArg != "" && s.Project != *projectArg {
			continue
		}
		if *statusArg != "" && s.Status != session.Status(*statusArg) {
			continue
		}
		proj := s.Project
		if proj == "" {
			proj = "(unassigned)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			proj, s.FolderName, s.Timestamp, s.Status, s.ScanDate,
			s.LastBuiltAt.Format("2006-01-02 15:04:05"), s.Source)
		n++
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("write output: %v", err)
	}
	if n == 0 {
		log.Print("no matching sessions")
	}
}
