package main

import (
	"fmt"
)

type statusCmd struct {
	ConsultaID string `arg:"" help:"consulta id to inspect"`

	Wait bool `help:"poll until the consulta reaches a terminal state"`
}

func (cmd *statusCmd) Run(opts *globalOptions) error {
	c := newClient(opts)

	if cmd.Wait {
		s, err := waitForDone(c, cmd.ConsultaID)
		if err != nil {
			return err
		}
		fmt.Println()
		printStatus(s)
		return terminalErr(s)
	}

	s, err := c.QueryStatus(cmd.ConsultaID)
	if err != nil {
		return err
	}
	printStatus(s)
	return terminalErr(s)
}
