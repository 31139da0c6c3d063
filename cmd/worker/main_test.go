package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shadowatlas/discovery-core/internal/connector"
	"github.com/shadowatlas/discovery-core/internal/detection"
)

func TestDetectionMethodForMapsEachPlatform(t *testing.T) {
	cases := []struct {
		platform connector.Platform
		want     detection.DetectionMethod
	}{
		{connector.PlatformSlack, detection.MethodAppDirectory},
		{connector.PlatformMicrosoft, detection.MethodServicePrincipal},
		{connector.PlatformJira, detection.MethodAuditLogPattern},
		{connector.PlatformGoogle, detection.MethodOAuthTokensAPI},
		{connector.PlatformGemini, detection.MethodOAuthTokensAPI},
		{connector.PlatformChatGPT, detection.MethodOAuthTokensAPI},
		{connector.PlatformClaude, detection.MethodOAuthTokensAPI},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, detectionMethodFor(c.platform), "platform %s", c.platform)
	}
}
