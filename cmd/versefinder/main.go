package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// Globals are flags shared by every command.
type Globals struct {
	Config    string `help:"Path to YAML config file (uses ./versefinder.yaml or ~/.config/versefinder/config.yaml if not provided)" type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error); overrides the config" name:"log-level"`
	LogFormat string `help:"Log format (text, json); overrides the config" name:"log-format"`
}

var CLI struct {
	Globals

	Plan       PlanCmd       `cmd:"" help:"Build an outline and search terms for a topic"`
	Refine     RefineCmd     `cmd:"" help:"Expand or validate the search terms of a session"`
	Collect    CollectCmd    `cmd:"" help:"Search the corpus for every section of a session"`
	Review     ReviewCmd     `cmd:"" help:"Drop collected verses interactively"`
	Report     ReportCmd     `cmd:"" help:"Rank collected verses and write the report"`
	Run        RunCmd        `cmd:"" help:"Run every stage headless and print a summary"`
	Dictionary DictionaryCmd `cmd:"" help:"Export the corpus word list"`
	Sessions   SessionsCmd   `cmd:"" help:"List stored sessions"`
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	k := kong.Parse(&CLI,
		kong.Name("versefinder"),
		kong.Description("Find and rank scripture verses for a study topic"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	err := k.Run(&CLI.Globals)
	k.FatalIfErrorf(err)
}
