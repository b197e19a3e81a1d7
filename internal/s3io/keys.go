package s3io

import (
	"fmt"
	"strings"
)

// Evidence artifacts live at claims/<claimID>/<evidenceID>/<filename>.
const keyRoot = "claims"

// BuildKey constructs the S3 key for an evidence artifact.
func BuildKey(claimID, evidenceID, filename string) string {
	return fmt.Sprintf("%s/%s/%s/%s", keyRoot, claimID, evidenceID, filename)
}

// ParseKey extracts the claim and evidence ids from an artifact key.
func ParseKey(key string) (claimID, evidenceID string, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != keyRoot {
		return "", "", false
	}
	if parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// UploadHeaders builds the headers the client must send on the presigned PUT.
// They have to match what was signed, so they mirror PresignPut's input.
func UploadHeaders(claimID, evidenceID, contentType string) map[string]string {
	return map[string]string{
		"Content-Type":                 contentType,
		"x-amz-server-side-encryption": "aws:kms",
		"x-amz-meta-claim_id":          claimID,
		"x-amz-meta-evidence_id":       evidenceID,
	}
}
