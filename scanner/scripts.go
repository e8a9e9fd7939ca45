package scanner

import (
	"fmt"
	"regexp"
)

// MaxHookCommand is the number of bytes of a hook command that are analyzed.
const MaxHookCommand = 2000

// LifecycleHooks are the manifest scripts npm runs on install or build.
var LifecycleHooks = []string{
	"preinstall", "install", "postinstall",
	"prepublish", "preprepare", "prepare", "postprepare",
}

type scriptPattern struct {
	Category string
	Re       *regexp.Regexp
}

var benignCommands = map[string]struct{}{
	"node-gyp rebuild":                     {},
	"node-gyp-build":                       {},
	"prebuild-install || node-gyp rebuild": {},
	"husky install":                        {},
	"husky":                                {},
	"is-ci || husky install":               {},
	"tsc":                                  {},
	"npm run build":                        {},
	"yarn build":                           {},
	"patch-package":                        {},
	"ngcc":                                 {},
	"opencollective-postinstall":           {},
	"node-gyp-build-optional-packages":     {},
}

// Anchored on both ends and free of shell separators, so a benign prefix
// never whitelists a compound command.
var benignCommandPattern = regexp.MustCompile(`^(?:` +
	`tsc(?: [\w./=-]{1,100}){0,8}` +
	`|(?:npm|pnpm|yarn) run [\w:.-]{1,64}` +
	`|node-gyp(?:-build)?(?: [\w=-]{1,32}){0,4}` +
	`|husky(?: install)?(?: [\w./-]{1,64})?` +
	`|patch-package(?: [\w=-]{1,32}){0,4}` +
	`|prebuild-install(?: [\w=.-]{1,64}){0,6}` +
	`|ngcc(?: [\w=-]{1,64}){0,6}` +
	`)$`)

// Checked in order; the first match decides the category.
var criticalScriptPatterns = []scriptPattern{
	{Category: "remote-code-execution", Re: regexp.MustCompile(`\b(?:curl|wget)\b[^|;&]{0,500}\|\s{0,10}(?:sudo\s{1,10})?(?:ba|z|da|k)?sh\b`)},
	{Category: "remote-code-execution", Re: regexp.MustCompile(`\b(?:curl|wget)\b[^|;&]{0,500}\|\s{0,10}(?:node|python3?|perl|ruby)\b`)},
	{Category: "remote-code-execution", Re: regexp.MustCompile(`\b(?:ba|z)?sh\s{1,10}-c\s{1,10}["']?\$\(\s{0,10}(?:curl|wget)\b`)},
	{Category: "remote-code-execution", Re: regexp.MustCompile(`(?i)\b(?:iwr|invoke-webrequest)\b[^|;&]{0,500}\|\s{0,10}(?:iex|invoke-expression)\b`)},
	{Category: "dynamic-eval", Re: regexp.MustCompile(`\beval\b\s{0,10}[("'$` + "`" + `]`)},
	{Category: "malware-loader", Re: regexp.MustCompile(`(?i)setup_bun\.js|bun_environment\.js|downloadAndSetupBun|trufflehog|sha1-?hulud|bun\.sh/install`)},
	{Category: "privileged-container", Re: regexp.MustCompile(`\bdocker\s{1,10}run\b[^;&|]{0,300}--privileged\b`)},
	{Category: "privileged-container", Re: regexp.MustCompile(`\bdocker\s{1,10}run\b[^;&|]{0,300}(?:-v|--volume)[\s=]{1,5}/:/`)},
	{Category: "ci-persistence", Re: regexp.MustCompile(`\.github/workflows/`)},
	{Category: "ci-persistence", Re: regexp.MustCompile(`\bconfig\.sh\s{1,10}--url\b|\bactions-runner\b`)},
}

// Each match emits its own warning.
var warningScriptPatterns = []scriptPattern{
	{Category: "obfuscation: base64 decode", Re: regexp.MustCompile(`\bbase64\s{1,10}(?:-d|--decode)\b`)},
	{Category: "obfuscation: Buffer base64", Re: regexp.MustCompile(`Buffer\.from\([^)]{0,200}['"]base64['"]`)},
	{Category: "obfuscation: atob", Re: regexp.MustCompile(`\batob\s{0,5}\(`)},
	{Category: "obfuscation: hex escapes", Re: regexp.MustCompile(`(?:\\x[0-9a-fA-F]{2}){8,64}`)},
	{Category: "insecure-network: plain http", Re: regexp.MustCompile(`\bhttp://[^\s"'|;&]{1,200}`)},
	{Category: "insecure-network: download", Re: regexp.MustCompile(`\b(?:curl|wget)\s`)},
	{Category: "backdoor: reverse shell", Re: regexp.MustCompile(`\b(?:nc|ncat|netcat)\b[^;&|]{0,100}\s-e\s|/dev/tcp/`)},
	{Category: "backdoor: chmod", Re: regexp.MustCompile(`\bchmod\s{1,10}(?:[ugoa]{0,3}\+x|[0-7]{3,4})\b`)},
	{Category: "backdoor: scheduled task", Re: regexp.MustCompile(`\bcrontab\b|\bsystemctl\s{1,10}enable\b|\blaunchctl\s{1,10}load\b`)},
	{Category: "backdoor: ssh keys", Re: regexp.MustCompile(`\.ssh/authorized_keys`)},
	{Category: "backdoor: child process", Re: regexp.MustCompile(`require\(\s{0,5}['"]child_process['"]\s{0,5}\)`)},
}

// AnalyzeScripts checks the lifecycle hooks in scripts and returns the
// resulting issues. A hook matching a critical pattern yields exactly one
// CRITICAL_SCRIPT issue and is not checked for warnings.
func AnalyzeScripts(scripts map[string]any, pkg, version, location string) []Issue {
	if len(scripts) == 0 {
		return nil
	}

	var issues []Issue
	for _, hook := range LifecycleHooks {
		raw, ok := scripts[hook]
		if !ok {
			continue
		}
		command, ok := raw.(string)
		if !ok || command == "" {
			continue
		}
		if len(command) > MaxHookCommand {
			command = command[:MaxHookCommand]
		}
		if isBenignCommand(command) {
			continue
		}

		if category, ok := matchCritical(command); ok {
			issues = append(issues, Issue{
				Kind:     KindCriticalScript,
				Package:  pkg,
				Version:  version,
				Location: location,
				Detail:   fmt.Sprintf("%s [%s]: %s", hook, category, command),
			})
			continue
		}
		for _, p := range warningScriptPatterns {
			if p.Re.MatchString(command) {
				issues = append(issues, Issue{
					Kind:     KindScriptWarning,
					Package:  pkg,
					Version:  version,
					Location: location,
					Detail:   fmt.Sprintf("%s [%s]: %s", hook, p.Category, command),
				})
			}
		}
	}
	return issues
}

func isBenignCommand(command string) bool {
	if _, ok := benignCommands[command]; ok {
		return true
	}
	return benignCommandPattern.MatchString(command)
}

func matchCritical(command string) (string, bool) {
	for _, p := range criticalScriptPatterns {
		if p.Re.MatchString(command) {
			return p.Category, true
		}
	}
	return "", false
}
