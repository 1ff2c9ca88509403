package core

// error_messages.go maps technical errors to coded, operator-friendly messages.
//
// Codes are grouped by category:
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key            Patterns: "duplicate key"
//	DB002 - Unique constraint        Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key              Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused       Patterns: "connection refused"
//	DB005 - Connection reset         Patterns: "connection reset"
//	DB006 - Timeout                  Patterns: "timeout"
//	DB007 - Deadlock                 Patterns: "deadlock"
//	DB008 - Missing table            Patterns: "no such table", "does not exist"
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Payload column missing  Patterns: "payload column"
//	SRC002 - Empty source            Patterns: "empty source"
//	SRC003 - Unreadable source       Patterns: "open source"
//	SRC004 - Invalid CSV             Patterns: "invalid csv"
//
// # Staging Errors (STG001-STG099)
//
//	STG001 - Bad artifact name       Patterns: "artifact name"
//	STG002 - Staging I/O             Patterns: "staging"
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - Invalid UTF-8           Patterns: "invalid utf-8"
//	MAP002 - Malformed document      Patterns: "malformed_document"
//	MAP003 - Bad mapping file        Patterns: "mapping file", "invalid mapping"
//	MAP004 - Record shape mismatch   Patterns: "record shape"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Run in progress         Patterns: "already in progress"
//	RUN002 - Cancelled               Patterns: "context canceled"
//	RUN003 - Deadline exceeded       Patterns: "context deadline exceeded"
//
// Anything else maps to ERR000.

import (
	"fmt"
	"strings"
)

// UserMessage is an error rendered for an operator.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Stable reference code
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is checked in order; the first match wins.
var errorPatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Check whether this batch was already loaded",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check whether this batch was already loaded",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Check whether this batch was already loaded",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "A child row references a job that does not exist",
			Action:  "Re-run the load stage; job rows are inserted before children",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "A child row references a job that does not exist",
			Action:  "Re-run the load stage; job rows are inserted before children",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Raise LOAD_TIMEOUT or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "no such table",
		msg: UserMessage{
			Message: "Destination tables are missing",
			Action:  "Run `jobetl migrate` first",
			Code:    "DB008",
		},
	},
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "Destination tables are missing",
			Action:  "Run `jobetl migrate` first",
			Code:    "DB008",
		},
	},

	{
		pattern: "payload column",
		msg: UserMessage{
			Message: "The source CSV has no payload column",
			Action:  "Set SOURCE_COLUMN to the header that holds the JSON-LD",
			Code:    "SRC001",
		},
	},
	{
		pattern: "empty source",
		msg: UserMessage{
			Message: "The source CSV has no rows",
			Action:  "Check SOURCE_CSV_PATH points at the scraped export",
			Code:    "SRC002",
		},
	},
	{
		pattern: "open source",
		msg: UserMessage{
			Message: "The source CSV could not be opened",
			Action:  "Check SOURCE_CSV_PATH and file permissions",
			Code:    "SRC003",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "The source file is not a valid CSV",
			Action:  "Ensure the file is comma-separated with a header row",
			Code:    "SRC004",
		},
	},

	{
		pattern: "artifact name",
		msg: UserMessage{
			Message: "A staged file does not follow the naming scheme",
			Action:  "Remove foreign files from the staging directory",
			Code:    "STG001",
		},
	},
	{
		pattern: "staging",
		msg: UserMessage{
			Message: "Staging directory could not be read or written",
			Action:  "Check STAGING_DIR exists and is writable",
			Code:    "STG002",
		},
	},

	{
		pattern: "invalid utf-8",
		msg: UserMessage{
			Message: "Source text is not valid UTF-8",
			Action:  "Re-export the scrape as UTF-8",
			Code:    "MAP001",
		},
	},
	{
		pattern: "malformed_document",
		msg: UserMessage{
			Message: "A staged posting is not a JSON object",
			Action:  "The record was loaded as an all-null placeholder; inspect the staged file",
			Code:    "MAP002",
		},
	},
	{
		pattern: "mapping file",
		msg: UserMessage{
			Message: "The field mapping file could not be used",
			Action:  "Fix MAPPING_FILE or unset it to use the built-in mapping",
			Code:    "MAP003",
		},
	},
	{
		pattern: "invalid mapping",
		msg: UserMessage{
			Message: "The field mapping is invalid",
			Action:  "Fix MAPPING_FILE or unset it to use the built-in mapping",
			Code:    "MAP003",
		},
	},
	{
		pattern: "record shape",
		msg: UserMessage{
			Message: "A staged record does not match the field mapping",
			Action:  "Re-run the transform stage with the current mapping",
			Code:    "MAP004",
		},
	},

	{
		pattern: "already in progress",
		msg: UserMessage{
			Message: "A pipeline run is already in progress",
			Action:  "Wait for the current run to finish",
			Code:    "RUN001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The run was cancelled",
			Action:  "Start a new run when ready",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The run exceeded its deadline",
			Action:  "Raise LOAD_TIMEOUT or try again later",
			Code:    "RUN003",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for details",
	Code:    "ERR000",
}

// MapError converts a technical error to a coded message.
// Matching is case-insensitive. Returns an empty UserMessage for nil.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsConstraintViolation reports whether err is a key or constraint
// violation. Retrying the same rows can never succeed.
func IsConstraintViolation(err error) bool {
	switch MapError(err).Code {
	case "DB001", "DB002", "DB003":
		return true
	}
	return false
}
