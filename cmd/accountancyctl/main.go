// Команда accountancyctl выполняет служебные операции сервиса бухгалтерии:
// миграции PostgreSQL, разовая отмена просроченных накладных и повтор сообщений из DLQ.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
