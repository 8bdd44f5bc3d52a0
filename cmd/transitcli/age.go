package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ageCmd = &cobra.Command{
	Use:   "age",
	Short: "Reports how long ago the installed dataset was built",
	Args:  cobra.NoArgs,
	RunE:  age,
}

func age(cmd *cobra.Command, args []string) error {
	engine, err := loadEngine()
	if err != nil {
		return err
	}
	fmt.Println(engine.DatasetAgeSeconds())
	return nil
}
