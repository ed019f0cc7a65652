package main

import (
	"log"
	"os"
)

var (
	exitFunc = defaultExit
	exit     = os.Exit
)

func main() {
	if err := execute(os.Args[1:]); err != nil {
		exitFunc(err)
	}
}

func execute(args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func defaultExit(err error) {
	log.Printf("coderoom: %v", err)
	exit(1)
}
