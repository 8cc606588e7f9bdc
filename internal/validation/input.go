package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Field limits.
const (
	MinDisplayNameLength      = 2
	MaxDisplayNameLength      = 100
	MinPostingTitleLength     = 3
	MaxPostingTitleLength     = 200
	MinPostingDescLength      = 10
	MaxPostingDescLength      = 5000
	MinCoverNoteLength        = 10
	MaxCoverNoteLength        = 2000
	MinMilestoneTitleLength   = 1
	MaxMilestoneTitleLength   = 200
	MaxReviewCommentLength    = 2000
	MaxDisputeReasonLength    = 2000
	MaxEvidenceNoteLength     = 2000
	MaxLocationLength         = 100
	MaxSkillLength            = 50
	MaxSkillsCount            = 30
	MaxMilestoneCount         = 20
	MaxExternalLinkLength     = 500
	MaxExternalLinksCount     = 10
	MinBudgetCents            = int64(0)
	MaxBudgetCents            = int64(10_000_000_00) // R10 million
)

var phoneRegex = regexp.MustCompile(`^\+?[0-9]{9,15}$`)

// ValidateLength checks rune length bounds; zero disables a bound.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s must be at most %d characters", fieldName, max)
	}
	return nil
}

// ValidateEmail checks the email format.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}

	email = strings.ToLower(strings.TrimSpace(email))

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("invalid email format")
	}

	localPart, domainPart := parts[0], parts[1]

	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("email local part must be between 1 and 64 characters")
	}
	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("email domain must be between 1 and 255 characters")
	}

	localRegex := regexp.MustCompile(`^[a-z0-9._+-]+$`)
	if !localRegex.MatchString(localPart) {
		return fmt.Errorf("email local part contains invalid characters")
	}

	domainRegex := regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	if !domainRegex.MatchString(domainPart) {
		return fmt.Errorf("email domain has an invalid format")
	}

	return nil
}

// ValidatePhone checks an E.164-ish phone number.
func ValidatePhone(phone string) error {
	if phone == "" {
		return fmt.Errorf("phone number is required")
	}
	phone = strings.TrimSpace(phone)
	if !phoneRegex.MatchString(phone) {
		return fmt.Errorf("invalid phone number format")
	}
	return nil
}

func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

func ValidateDisplayName(displayName string) error {
	if displayName == "" {
		return fmt.Errorf("display name is required")
	}
	return ValidateLength("display name", strings.TrimSpace(displayName), MinDisplayNameLength, MaxDisplayNameLength)
}

func ValidatePostingTitle(title string) error {
	if title == "" {
		return fmt.Errorf("posting title is required")
	}
	return ValidateLength("posting title", strings.TrimSpace(title), MinPostingTitleLength, MaxPostingTitleLength)
}

func ValidatePostingDescription(description string) error {
	if description == "" {
		return fmt.Errorf("posting description is required")
	}
	return ValidateLength("posting description", strings.TrimSpace(description), MinPostingDescLength, MaxPostingDescLength)
}

func ValidateCoverNote(coverNote string) error {
	if coverNote == "" {
		return fmt.Errorf("cover note is required")
	}
	return ValidateLength("cover note", strings.TrimSpace(coverNote), MinCoverNoteLength, MaxCoverNoteLength)
}

// ValidateBudget checks an amount range in cents.
func ValidateBudget(budgetMin, budgetMax *int64) error {
	if budgetMin != nil {
		if *budgetMin < MinBudgetCents {
			return fmt.Errorf("minimum budget cannot be negative")
		}
		if *budgetMin > MaxBudgetCents {
			return fmt.Errorf("minimum budget cannot exceed %d cents", MaxBudgetCents)
		}
	}
	if budgetMax != nil {
		if *budgetMax < MinBudgetCents {
			return fmt.Errorf("maximum budget cannot be negative")
		}
		if *budgetMax > MaxBudgetCents {
			return fmt.Errorf("maximum budget cannot exceed %d cents", MaxBudgetCents)
		}
	}
	if budgetMin != nil && budgetMax != nil && *budgetMin > *budgetMax {
		return fmt.Errorf("minimum budget cannot exceed maximum budget")
	}
	return nil
}

// ValidateSkills checks a skill list for limits and duplicates.
func ValidateSkills(skills []string) error {
	if len(skills) > MaxSkillsCount {
		return fmt.Errorf("skill count cannot exceed %d", MaxSkillsCount)
	}

	seen := make(map[string]bool)
	for _, skill := range skills {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			return fmt.Errorf("skill cannot be empty")
		}
		if utf8.RuneCountInString(skill) > MaxSkillLength {
			return fmt.Errorf("skill cannot be longer than %d characters", MaxSkillLength)
		}
		lower := strings.ToLower(skill)
		if seen[lower] {
			return fmt.Errorf("skill '%s' is listed twice", skill)
		}
		seen[lower] = true
	}
	return nil
}

func ValidateLocation(location *string) error {
	if location != nil && *location != "" {
		return ValidateLength("location", strings.TrimSpace(*location), 0, MaxLocationLength)
	}
	return nil
}

// ValidateExternalLink checks an http(s) URL.
func ValidateExternalLink(link string) error {
	link = strings.TrimSpace(link)
	if link == "" {
		return fmt.Errorf("link cannot be empty")
	}
	if err := ValidateLength("link", link, 0, MaxExternalLinkLength); err != nil {
		return err
	}

	parsed, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("invalid URL format")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("link must start with http:// or https://")
	}
	if parsed.Host == "" {
		return fmt.Errorf("link must contain a host name")
	}
	return nil
}

func ValidateExternalLinks(links []string) error {
	if len(links) > MaxExternalLinksCount {
		return fmt.Errorf("link count cannot exceed %d", MaxExternalLinksCount)
	}
	for _, link := range links {
		if err := ValidateExternalLink(link); err != nil {
			return err
		}
	}
	return nil
}

func ValidateMilestoneTitle(title string) error {
	if title == "" {
		return fmt.Errorf("milestone title is required")
	}
	return ValidateLength("milestone title", strings.TrimSpace(title), MinMilestoneTitleLength, MaxMilestoneTitleLength)
}
