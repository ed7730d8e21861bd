// Copyright 2025 Helio Display Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sentry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/heliowm/helio-core/pkg/version"
	"go.uber.org/zap"
)

// IssueType classifies a reported issue.
type IssueType string

const (
	IssueTypeWarning IssueType = "warning"
	IssueTypeError   IssueType = "error"
	IssueTypeFatal   IssueType = "fatal"
)

var enabled bool

// InitSentry initializes sentry with the given app version. Local
// development builds (the default version) never report upstream; issues
// still land in the log.
func InitSentry(appVersion string, dsn string) {
	if appVersion == "" || appVersion == version.DefaultAppVersion || dsn == "" {
		zap.S().Debug("Sentry disabled for local development build")

		return
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:           dsn,
		Release:       "helio-core@" + appVersion,
		EnableTracing: false,
	})
	if err != nil {
		zap.S().Errorf("Failed to initialize Sentry: %s", err)

		return
	}

	enabled = true
}

// Flush drains buffered events. Call before process exit.
func Flush() {
	if enabled {
		sentry.Flush(2 * time.Second)
	}
}

// ReportIssue logs the error through the supplied logger and, when sentry
// is enabled, forwards it with the matching severity.
func ReportIssue(err error, issueType IssueType, log *zap.SugaredLogger) {
	if log == nil {
		// If logger initialization failed somehow, create a no-op logger to avoid nil panics
		log = zap.NewNop().Sugar()
	}

	switch issueType {
	case IssueTypeFatal:
		log.Errorf("fatal: %v", err)
		capture(err, sentry.LevelFatal)
	case IssueTypeError:
		log.Errorf("%v", err)
		capture(err, sentry.LevelError)
	case IssueTypeWarning:
		log.Warnf("%v", err)
		capture(err, sentry.LevelWarning)
	}
}

// ReportIssuef formats an error message and reports it.
func ReportIssuef(issueType IssueType, log *zap.SugaredLogger, template string, args ...interface{}) {
	ReportIssue(fmt.Errorf(template, args...), issueType, log)
}

func capture(err error, level sentry.Level) {
	if !enabled {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		sentry.CaptureException(err)
	})
}
