package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

type listCmd struct {
	Estado string `help:"filter by state" enum:",recibido,procesando,completado,error" default:""`
	Limite int    `help:"maximum number of consultas to list"`
}

func (cmd *listCmd) Run(opts *globalOptions) error {
	list, err := newClient(opts).ListQueries(cmd.Estado, cmd.Limite)
	if err != nil {
		return err
	}

	if list.Total == 0 {
		fmt.Println("no hay consultas")
		return nil
	}

	out := make([][]string, 0, len(list.Consultas))
	for _, e := range list.Consultas {
		out = append(out, []string{
			e.ConsultaID,
			e.Estado,
			strconv.Itoa(e.Progreso) + "%",
			e.User,
			e.Resumen.Satellite,
			e.Resumen.Domain,
			fmt.Sprintf("%.1f", e.Resumen.TotalHours),
			e.CreatedAt,
			truncate(e.Mensaje, 40),
		})
	}

	w := tablewriter.NewWriter(os.Stdout)
	w.SetHeader([]string{"id", "estado", "prog", "usuario", "sat", "dominio", "horas", "creada", "mensaje"})
	w.SetFooter([]string{"", "", "", "", "", "", "", "total", strconv.Itoa(list.Total)})
	w.AppendBulk(out)
	w.Render()

	return nil
}
