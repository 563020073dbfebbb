package main

import (
	"fmt"
)

type restartCmd struct {
	ConsultaID string `arg:"" help:"consulta id to requeue"`

	Wait bool `help:"poll until the consulta reaches a terminal state"`
}

func (cmd *restartCmd) Run(opts *globalOptions) error {
	c := newClient(opts)

	resp, err := c.RestartQuery(cmd.ConsultaID)
	if err != nil {
		return err
	}

	fmt.Println("consulta : ", resp.ConsultaID)
	fmt.Println("estado   : ", resp.Estado)
	fmt.Println("mensaje  : ", resp.Mensaje)

	if !cmd.Wait {
		return nil
	}

	s, err := waitForDone(c, resp.ConsultaID)
	if err != nil {
		return err
	}

	fmt.Println()
	printStatus(s)
	return terminalErr(s)
}
