// Command qa runs the questions/answers API ("qa serve") and talks to a
// running instance ("qa questions ...", "qa answers ...").
//
// @title						Q&A Backend API
// @version					1.0
// @description				In-memory questions and answers service.
// @BasePath					/
// @schemes					http https
// @accept						json
// @produce					json
// @externalDocs.description	OpenAPI
// @externalDocs.url			https://swagger.io/resources/open-api/
package main

import "github.com/tbourn/go-qa-backend/internal/cli"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.Execute(version)
}
