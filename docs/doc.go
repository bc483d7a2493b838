// Package docs provides generated OpenAPI documentation.
//
// Leaflet API
//
//	@title			Leaflet API
//	@version		1.0
//	@description	Flipbook viewer API for pages, navigation and the AI reading companion.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/leaflet
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/leaflet/serve.go -o . --parseDependency --parseInternal
