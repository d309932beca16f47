package planner

import (
	"strings"

	"github.com/codeready-toolchain/argus/pkg/models"
)

// Vocabulary sets driving the planning rules. Matching is
// case-insensitive and descriptions match by substring. The security,
// SSH and web-attack group sets match groups exactly; the vocabulary
// lists checked by matchesVocab match groups by substring too.

var resourceVocab = []string{"cpu", "memory", "ram", "disk", "performance", "overload"}

var securityGroups = map[string]bool{
	"authentication":      true,
	"attack":              true,
	"intrusion_detection": true,
	"malware":             true,
}

var malwareVocab = []string{"malware", "virus", "trojan", "ransomware", "rootkit", "backdoor"}

var webAttackVocab = []string{"web attack", "sql injection", "xss", "cross-site", "directory traversal", "web_attack"}

var authVocab = []string{"authentication", "privilege", "sudo", "su ", "pam", "login"}

func isResourceAlert(alert *models.Alert) bool {
	return matchesVocab(alert, resourceVocab)
}

func isSecurityEvent(alert *models.Alert) bool {
	if alert.Rule == nil {
		return false
	}
	if alert.Rule.Level >= 7 {
		return true
	}
	for _, g := range alert.Rule.Groups {
		if securityGroups[strings.ToLower(g)] {
			return true
		}
	}
	return false
}

func isSSHAlert(alert *models.Alert) bool {
	if alert.Rule == nil {
		return false
	}
	for _, g := range alert.Rule.Groups {
		lower := strings.ToLower(g)
		if lower == "sshd" || lower == "ssh" {
			return true
		}
	}
	desc := strings.ToLower(alert.Rule.Description)
	return strings.Contains(desc, "ssh")
}

func isMalwareAlert(alert *models.Alert) bool {
	return matchesVocab(alert, malwareVocab)
}

func isWebAttackAlert(alert *models.Alert) bool {
	if alert.Rule == nil {
		return false
	}
	for _, g := range alert.Rule.Groups {
		lower := strings.ToLower(g)
		if lower == "web" || lower == "web_attack" {
			return true
		}
	}
	desc := strings.ToLower(alert.Rule.Description)
	for _, term := range webAttackVocab {
		if strings.Contains(desc, term) {
			return true
		}
	}
	return false
}

func isAuthAlert(alert *models.Alert) bool {
	return matchesVocab(alert, authVocab)
}

// matchesVocab reports whether any vocabulary term appears in the rule
// groups or description.
func matchesVocab(alert *models.Alert, vocab []string) bool {
	if alert.Rule == nil {
		return false
	}
	desc := strings.ToLower(alert.Rule.Description)
	for _, term := range vocab {
		if strings.Contains(desc, term) {
			return true
		}
	}
	for _, g := range alert.Rule.Groups {
		lower := strings.ToLower(g)
		for _, term := range vocab {
			if strings.Contains(lower, term) {
				return true
			}
		}
	}
	return false
}
