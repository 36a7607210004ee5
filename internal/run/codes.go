package run

// Process exit codes. Precondition and fatal-dismiss categories each get
// a distinct small positive code so callers can react without parsing
// logs.
const (
	ExitOK              = 0
	ExitUsage           = 1
	ExitNoInput         = 2
	ExitWrongExt        = 3
	ExitConfigBackup    = 4
	ExitFatalDialog     = 5
	ExitStartupTimeout  = 6
	ExitArtifactTimeout = 7
	ExitMissingTool     = 8
	ExitInterrupted     = 130
)

// CheckExit maps a finding count from a check-style operation to an exit
// status. The contract is "negative of the error count"; a POSIX exit
// status is a byte, so the harness observes the two's complement: 255 for
// one finding, 254 for two, and so on. Zero findings is success.
func CheckExit(findings int) int {
	if findings <= 0 {
		return ExitOK
	}
	return int(uint8(-findings))
}
