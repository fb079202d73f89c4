package helpers

import (
	"encoding/json"
)

// TestOperator represents a test operator fixture
type TestOperator struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TestExperiment represents a test experiment request fixture
type TestExperiment struct {
	CampaignID string   `json:"campaign_id"`
	Variants   []string `json:"variants"`
}

// Default test fixtures
var (
	DefaultTestOperator = TestOperator{
		Email:    "ops@example.com",
		Password: "test-password-123",
	}

	DefaultTestExperiment = TestExperiment{
		CampaignID: "integration-campaign",
		Variants: []string{
			"Try our new cold brew this weekend",
			"Weekend special: cold brew is here",
		},
	}
)

// CreateTestLoginRequest builds a login request payload
func CreateTestLoginRequest(email, password string) map[string]interface{} {
	return map[string]interface{}{
		"email":    email,
		"password": password,
	}
}

// CreateTestPauseRequest builds an agent pause payload
func CreateTestPauseRequest(reason string) map[string]interface{} {
	return map[string]interface{}{
		"reason": reason,
	}
}

// CreateTestSafetyCheckRequest builds a safety check payload
func CreateTestSafetyCheckRequest(text, campaignID string) map[string]interface{} {
	return map[string]interface{}{
		"text":        text,
		"campaign_id": campaignID,
	}
}

// CreateTestExperimentRequest builds an experiment creation payload
func CreateTestExperimentRequest(campaignID string, variants []string) map[string]interface{} {
	return map[string]interface{}{
		"campaign_id": campaignID,
		"variants":    variants,
	}
}

// ToJSON converts a fixture to a JSON string
func ToJSON(fixture interface{}) string {
	data, _ := json.Marshal(fixture)
	return string(data)
}

// FromJSON parses a JSON string into a generic map
func FromJSON(jsonStr string) map[string]interface{} {
	var result map[string]interface{}
	_ = json.Unmarshal([]byte(jsonStr), &result)
	return result
}
