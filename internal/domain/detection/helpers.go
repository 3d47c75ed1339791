package detection

import (
	"regexp"
	"strings"

	"github.com/stoik/threat-engine/internal/domain/learning"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

var freemailDomains = []string{
	"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "aol.com",
	"gmx.com", "proton.me", "protonmail.com", "laposte.net", "orange.fr",
}

// ValidateEmail performs basic email format validation
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// isInternalDomain checks if a domain belongs to the organization
func isInternalDomain(domain string, internalDomains []string) bool {
	for _, internal := range internalDomains {
		if domain == internal || strings.HasSuffix(domain, "."+internal) {
			return true
		}
	}
	return false
}

func isFreemail(domain string) bool {
	return containsString(freemailDomains, learning.RegistrableDomain(domain))
}

// sameOrganization compares two domains by their registrable part
func sameOrganization(a, b string) bool {
	return learning.RegistrableDomain(a) == learning.RegistrableDomain(b)
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	// matrix[i][j] = distance between s1[0:i] and s2[0:j]
	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
	}
	for i := 0; i <= len(s1); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(s1)][len(s2)]
}

// containsAny checks if text contains any of the keywords
func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// countKeywords counts how many keywords from the list appear in text
func countKeywords(text string, keywords []string) int {
	count := 0
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			count++
		}
	}
	return count
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
