package analyzer

import (
	"bytes"
	"fmt"

	"github.com/HillviewCap/ferrocodex-sub002/models"
)

// highEntropyThreshold is the bits-per-byte score above which a buffer is
// flagged as possibly packed or encrypted.
const highEntropyThreshold = 7.5

// bytePattern is a known-bad literal marker searched for in the raw buffer.
type bytePattern struct {
	pattern     []byte
	severity    models.Severity
	findingType string
	description string
}

var insecurePatterns = []bytePattern{
	{[]byte("admin\x00"), models.SeverityHigh, "Hardcoded Credentials", "Hardcoded 'admin' credential string found"},
	{[]byte("password\x00"), models.SeverityHigh, "Hardcoded Credentials", "Hardcoded 'password' credential string found"},
	{[]byte("root\x00"), models.SeverityHigh, "Hardcoded Credentials", "Hardcoded 'root' credential string found"},
	{[]byte("telnetd"), models.SeverityMedium, "Insecure Service", "Telnet daemon reference found; telnet transmits credentials in cleartext"},
	{[]byte("dropbear"), models.SeverityLow, "Embedded SSH Server", "Dropbear SSH server reference found; verify the bundled version is current"},
}

var embeddedExecutableMagics = []struct {
	magic []byte
	label string
}{
	{[]byte{0x7F, 0x45, 0x4C, 0x46}, "ELF"},
	{[]byte{0x4D, 0x5A, 0x90, 0x00}, "PE"},
}

// PerformSecurityChecks runs the heuristic security scan over the buffer.
// fileType is the already-detected file type, used by the hidden-executable
// cross-check. Each byte pattern reports only its first occurrence.
func PerformSecurityChecks(data []byte, fileType string, entropy float64) []models.SecurityFinding {
	var findings []models.SecurityFinding

	if entropy > highEntropyThreshold {
		findings = append(findings, models.SecurityFinding{
			Severity:    models.SeverityInfo,
			FindingType: "High Entropy",
			Description: fmt.Sprintf("Entropy score %.2f exceeds %.1f; content may be encrypted or packed", entropy, highEntropyThreshold),
		})
	}

	for _, p := range insecurePatterns {
		if idx := bytes.Index(data, p.pattern); idx >= 0 {
			offset := int64(idx)
			findings = append(findings, models.SecurityFinding{
				Severity:    p.severity,
				FindingType: p.findingType,
				Description: p.description,
				Offset:      &offset,
			})
		}
	}

	// A buffer that is not itself an executable but contains an executable
	// magic sequence somewhere inside it suggests a packed or hidden payload.
	if !isExecutableType(fileType) {
		for _, m := range embeddedExecutableMagics {
			if idx := bytes.Index(data, m.magic); idx >= 0 {
				offset := int64(idx)
				findings = append(findings, models.SecurityFinding{
					Severity:    models.SeverityMedium,
					FindingType: "Hidden Executable",
					Description: fmt.Sprintf("Embedded %s executable header found inside non-executable content", m.label),
					Offset:      &offset,
				})
			}
		}
	}

	return findings
}
