package main

import (
	"fmt"
)

type submitCmd struct {
	File string `arg:"" optional:"" type:"path" help:"request json; - or empty reads stdin"`

	Wait bool `help:"poll until the consulta reaches a terminal state"`
}

func (cmd *submitCmd) Run(opts *globalOptions) error {
	req, err := readRequest(cmd.File)
	if err != nil {
		return err
	}

	c := newClient(opts)
	resp, err := c.SubmitQuery(req)
	if err != nil {
		return err
	}

	fmt.Println("consulta : ", resp.ConsultaID)
	fmt.Println("estado   : ", resp.Estado)
	fmt.Println("mensaje  : ", resp.Mensaje)
	fmt.Println("resumen  : ", fmt.Sprintf("%s %s %s, %.1f horas sobre %d fechas",
		resp.Resumen.Satellite, resp.Resumen.Level, resp.Resumen.Domain,
		resp.Resumen.TotalHours, resp.Resumen.TotalDays))

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
