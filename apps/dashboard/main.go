package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/user"
	"github.com/trezcool/mahudhurio/portal"
	logsvc "github.com/trezcool/mahudhurio/services/logger"
)

func main() {
	conf := core.NewConfig()

	// output belongs to the dashboard; logs go to stderr
	logger := logsvc.NewRollbarLogger(log.New(os.Stderr, "DASHBOARD : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	// set up validators
	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	school.InitValidators(validate, translator)

	client := portal.NewClient(
		portal.NewHTTPRequester(conf.Portal.BaseURL, conf.Portal.Timeout),
		portal.NewFileTokenStore(conf.Portal.TokenFile),
		validate,
		translator,
		logger,
	)

	// start CLI
	cli := commandLine{
		dash: portal.NewDashboard(client, logger),
		out:  os.Stdout,
	}
	if err := cli.run(context.Background(), os.Args); err != nil {
		if err != errHelp {
			fmt.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
