// Command function serves the provisioning cloud functions locally.
// Set FUNCTION_TARGET to ProvisionHTTP or ProvisionPubSub.
package main

import (
	"fmt"
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"

	"github.com/trezcool/tutorhub/apps/di"
	_ "github.com/trezcool/tutorhub/apps/function"
	"github.com/trezcool/tutorhub/core"
)

func main() {
	conf := core.NewConfig()
	logger := di.NewLogger(conf, "FUNCTION : ")
	defer logger.Close()

	port := "8080"
	if envPort := os.Getenv("PORT"); envPort != "" {
		port = envPort
	}
	logger.Info(fmt.Sprintf("serving %q on :%s", os.Getenv("FUNCTION_TARGET"), port))
	if err := funcframework.Start(port); err != nil {
		logger.Fatal(fmt.Sprintf("funcframework.Start: %v", err), err)
	}
}
