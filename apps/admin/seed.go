package main

import (
	"context"
	"fmt"

	"github.com/trezcool/mahudhurio/apps/shared"
)

func (cli *commandLine) seed() error {
	created, err := shared.Seed(context.Background(), cli.usrSvc, cli.schoolSvc, cli.logger)
	if err != nil {
		return err
	}
	if !created {
		fmt.Printf("%q already exists, nothing to seed\n", shared.DefaultTeacherUsername)
	}
	return nil
}
