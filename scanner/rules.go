package scanner

import "regexp"

// Indicators seen in Shai-Hulud loader and payload scripts.
var shaiHuludIndicators = []Pattern{
	{Name: "bun_environment payload reference", Re: regexp.MustCompile(`bun_environment`)},
	{Name: "setup_bun loader reference", Re: regexp.MustCompile(`setup_bun`)},
	{Name: "bun installer download", Re: regexp.MustCompile(`bun\.sh/install`)},
	{Name: "loader function", Re: regexp.MustCompile(`downloadAndSetupBun`)},
	{Name: "payload execution", Re: regexp.MustCompile(`runExecutable[\s\S]{0,200}bunPath`)},
	{Name: "trufflehog secret scan", Re: regexp.MustCompile(`(?i)trufflehog`)},
	{Name: "campaign identifier", Re: regexp.MustCompile(`(?i)sha1-?hulud`)},
	{Name: "campaign marker", Re: regexp.MustCompile(`The (?:Second|Continued) Coming`)},
	{Name: "webhook exfiltration", Re: regexp.MustCompile(`webhook\.site/[0-9a-f-]{36}`)},
}

// Signatures of bundler and compiler output, which commonly ships files
// named bundle.js or verify.js.
var bundlerSignatures = []Pattern{
	{Name: "webpack runtime", Re: regexp.MustCompile(`__webpack_require__`)},
	{Name: "parcel runtime", Re: regexp.MustCompile(`parcelRequire`)},
	{Name: "source map reference", Re: regexp.MustCompile(`(?m)^//# sourceMappingURL=[\w./-]{1,256}\.map\s*$`)},
	{Name: "compiled ES module", Re: regexp.MustCompile(`Object\.defineProperty\(exports, ["']__esModule["']`)},
}

// Indicators seen in the backdoor workflows Shai-Hulud commits to
// .github/workflows.
var workflowIndicators = []Pattern{
	{Name: "campaign identifier", Re: regexp.MustCompile(`(?i)sha1-?hulud`)},
	{Name: "campaign marker", Re: regexp.MustCompile(`The (?:Second|Continued) Coming`)},
	{Name: "payload reference", Re: regexp.MustCompile(`bun_environment|setup_bun`)},
	{Name: "trufflehog secret scan", Re: regexp.MustCompile(`(?i)trufflehog|\.truffler-cache`)},
	{Name: "discussion backdoor step", Re: regexp.MustCompile(`Add Discusion`)},
	{Name: "runner tracking disabled", Re: regexp.MustCompile(`RUNNER_TRACKING_ID:\s*0\b`)},
	{Name: "self-hosted runner executing discussion body", Re: regexp.MustCompile(
		`runs-on:\s*self-hosted[\s\S]{0,1000}github\.event\.discussion\.body` +
			`|github\.event\.discussion\.body[\s\S]{0,1000}runs-on:\s*self-hosted`)},
}

// workflowRule applies to workflow files that have no rule of their own.
var workflowRule = TextRule{
	Description: "Shai-Hulud backdoor workflow",
	Indicators:  workflowIndicators,
}

var defaultRules = map[string]Rule{
	"bun_environment.js":      NameOnlyRule{Description: "Shai-Hulud credential stealing payload"},
	"setup_bun.js":            NameOnlyRule{Description: "Shai-Hulud loader script"},
	"truffleSecrets.json":     NameOnlyRule{Description: "Shai-Hulud harvested secrets dump"},
	"actionsSecrets.json":     NameOnlyRule{Description: "Shai-Hulud exfiltrated GitHub Actions secrets"},
	"shai-hulud-workflow.yml": NameOnlyRule{Description: "Shai-Hulud backdoor workflow"},
	"shaihuludworkflow.yml":   NameOnlyRule{Description: "Shai-Hulud backdoor workflow"},

	"bundle.js": TextRule{
		Description:  "Shai-Hulud bundled payload",
		Indicators:   shaiHuludIndicators,
		SafePatterns: bundlerSignatures,
	},
	"discussion.yaml": TextRule{
		Description: "Shai-Hulud discussion backdoor workflow",
		Indicators:  workflowIndicators,
	},
	"verify.js": TextRule{
		Description:  "Shai-Hulud loader variant",
		Indicators:   shaiHuludIndicators,
		SafePatterns: bundlerSignatures,
	},

	"cloud.json": JSONRule{
		Description:  "exfiltrated cloud credentials",
		RequiredKeys: []string{"aws", "gcp", "azure", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "GOOGLE_APPLICATION_CREDENTIALS"},
		SafeKeys:     []string{"$schema", "hosting", "firestore"},
	},
	"contents.json": JSONRule{
		Description:  "exfiltrated host inventory",
		RequiredKeys: []string{"system", "environment", "githubToken", "npmToken", "secrets"},
		SafeKeys:     []string{"images", "info", "colors", "symbols"},
	},
	"environment.json": JSONRule{
		Description:  "exfiltrated environment variables",
		RequiredKeys: []string{"GITHUB_TOKEN", "NPM_TOKEN", "GH_TOKEN", "NODE_AUTH_TOKEN", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY"},
		SafeKeys:     []string{"$schema", "_postman_variable_scope", "values"},
	},
}

// Directory names that are artifacts on their own.
var artifactDirs = map[string]string{
	".truffler-cache": "TruffleHog cache directory created by Shai-Hulud",
}
