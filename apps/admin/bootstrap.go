package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) bootstrap() error {
	res, err := cli.seeder.Run(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("bootstrap: %s\n", res)
	return nil
}
