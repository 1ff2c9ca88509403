// Package core holds the domain types shared by every pipeline stage.
//
// The extract, transform and load stages never talk to each other directly.
// They exchange staged artifacts, and this package defines what those
// artifacts contain and how failures are classified.
//
// # Records
//
// A [Record] is the normalized result of mapping one scraped JSON-LD job
// posting. It always carries every destination table declared by the field
// mapping, with every declared column present (nil for NULL):
//
//	core.Record{
//	    Sequence:      42,
//	    CorrelationID: id,
//	    State:         core.StateTransformed,
//	    Tables: core.Tables{
//	        "job":     {"title": "Engineer", "industry": nil, ...},
//	        "company": {"name": "Acme & Co", "link": nil},
//	        ...
//	    },
//	}
//
// Sequence is the record's position in the source CSV and CorrelationID is a
// client-generated identifier assigned at extraction. Both survive every
// stage, so the loader can link child rows to their job by identifier rather
// than by insert position.
//
// # Lifecycle
//
// Each record moves strictly forward through three states:
//
//	extracted -> transformed -> loaded
//
// Retries are handled by re-running a whole stage, never by moving a record
// backwards.
//
// # Error Handling
//
// Domain failures are reported as [*DomainError] values that carry a
// [ErrorKind] and a stack trace. [MapError] converts any error into a coded
// [UserMessage] for the status page and CLI output:
//
//	msg := core.MapError(err)
//	fmt.Printf("%s (Code: %s)\n", msg.Message, msg.Code)
//
// # Conversion
//
// The ToPg* helpers in convert.go turn loosely typed record values into
// pgtype values. Anything that cannot be converted becomes NULL; the pipeline
// never rejects a record because a value has the wrong shape.
package core
