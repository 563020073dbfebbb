package main

import (
	"github.com/alecthomas/kong"
)

type globalOptions struct {
	Endpoint string `short:"e" default:"http://localhost:8000" help:"goesrecover api endpoint"`
	APIKey   string `name:"api-key" env:"API_KEY" help:"value for the X-API-Key header on protected endpoints"`
}

var cli struct {
	globalOptions

	Submit     submitCmd     `cmd:"" help:"Submit a retrieval request and print its consulta id."`
	Validate   validateCmd   `cmd:"" help:"Run a request through admission without queuing it."`
	Status     statusCmd     `cmd:"" help:"Print the state of a consulta."`
	Results    resultsCmd    `cmd:"" help:"Print the final report of a completed consulta."`
	List       listCmd       `cmd:"" help:"List recent consultas."`
	Restart    restartCmd    `cmd:"" help:"Requeue a consulta from scratch."`
	Delete     deleteCmd     `cmd:"" help:"Delete a consulta, optionally purging its files."`
	Satellites satellitesCmd `cmd:"" help:"Print the request catalog the instance accepts."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("goesrecover-cli"),
		kong.Description("Command line utility to drive a goesrecover instance."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli.globalOptions)
	ctx.FatalIfErrorf(err)
}
