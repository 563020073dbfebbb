package main

import (
	"fmt"
)

type deleteCmd struct {
	ConsultaID string `arg:"" help:"consulta id to delete"`

	Purge bool `help:"also remove the downloaded files"`
	Force bool `help:"delete even while the consulta is processing"`
}

func (cmd *deleteCmd) Run(opts *globalOptions) error {
	resp, err := newClient(opts).DeleteQuery(cmd.ConsultaID, cmd.Purge, cmd.Force)
	if err != nil {
		return err
	}

	fmt.Println("consulta  : ", resp.ConsultaID)
	fmt.Println("eliminada : ", resp.Eliminada)
	fmt.Println("purgada   : ", resp.Purgada)
	return nil
}
