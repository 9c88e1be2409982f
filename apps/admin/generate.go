package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core/curriculum"
)

// generate drafts the courses and blocks until the architect is done.
func (cli *commandLine) generate(topic string, bulk bool) error {
	var err error
	if bulk {
		err = cli.architect.StartBulk(nil)
	} else {
		err = cli.architect.StartSingle(topic)
	}
	if err != nil {
		return err
	}

	st, err := cli.architect.Wait(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("generate: %s, %d/%d course(s): %s\n", st.State, len(st.CourseIDs), st.CourseTotal, strings.Join(st.CourseIDs, ", "))
	if st.State == curriculum.StateFailed {
		return errors.New(st.Error)
	}
	return nil
}
