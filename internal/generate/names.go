package generate

// ComponentNames is the built-in component pool. Each project samples from it
// without replacement.
var ComponentNames = []string{
	"Database", "Network", "FileSystem", "Parser", "Renderer", "Controller",
	"Manager", "Service", "Handler", "Processor", "Cache", "Logger",
	"Validator", "Transformer", "Analyzer", "Optimizer", "Monitor", "Scheduler",
	"Allocator", "Registry", "Factory", "Builder", "Adapter", "Facade",
}

// UtilNames is the built-in utility pool
var UtilNames = []string{
	"StringUtils", "MathUtils", "DateUtils", "FileUtils", "NetworkUtils",
	"JsonUtils", "XmlUtils", "CryptoUtils", "CompressionUtils", "ValidationUtils",
}

// ConfigNames lists the config/<name>.json files written for every project
var ConfigNames = []string{"build", "deploy", "test", "lint"}

// DocNames lists the docs/<name>.md files written for every project
var DocNames = []string{"README", "CONTRIBUTING", "ARCHITECTURE", "API"}

const (
	// UtilsPerProject caps the utility files sampled per project
	UtilsPerProject = 5
	// IntegrationTests is the fixed number of integration tests per project
	IntegrationTests = 5
)

// File kinds, used for per-kind counts and metric labels
const (
	KindSource      = "source"
	KindHeader      = "header"
	KindUnitTest    = "unit_test"
	KindUtil        = "util"
	KindConfig      = "config"
	KindDoc         = "doc"
	KindIntegration = "integration_test"
)

// ExpectedFiles returns how many files one project holds for the given shape
// and pool sizes.
func ExpectedFiles(components, filesPerComponent, componentPool, utilPool int) int {
	perComponent := 2*filesPerComponent + filesPerComponent/2
	return min(components, componentPool)*perComponent +
		min(UtilsPerProject, utilPool) +
		len(ConfigNames) + len(DocNames) + IntegrationTests
}
