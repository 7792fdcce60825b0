package utils

import "strings"

func LatestPublishedCacheKey(patientID string) string {
	return "prescriptions:latest:v1:patient=" + strings.TrimSpace(patientID)
}
