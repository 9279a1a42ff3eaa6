// Package errors provides structured error types for better observability
// and programmatic error handling across the boot pipeline.
//
// Example usage:
//
//	err := errors.WrapWithContext(
//	    errors.ErrCodeTimeout,
//	    "failed to reach metadata service",
//	    ctx.Err(),
//	    map[string]interface{}{
//	        "url":        url,
//	        "datasource": dsName,
//	    },
//	)
package errors
