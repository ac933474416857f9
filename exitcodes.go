package pixelsafe

import "fmt"

// Exit codes of the document-to-pixels child. The values are shared with
// the dangerzone converter image so either child can be driven.
const (
	errorShift = 100

	CodeUnspecified           = errorShift
	CodeFormatUnsupported     = errorShift + 10
	CodeFormatUnsupportedARM  = errorShift + 15
	CodeFormatUnsupportedQube = errorShift + 16
	CodeOfficeFailure         = errorShift + 20
	CodeInvalidImage          = errorShift + 30
	CodePages                 = errorShift + 40
	CodeNoPageCount           = errorShift + 41
	CodeMaxPages              = errorShift + 42
	CodeMaxPageWidth          = errorShift + 44
	CodeMaxPageHeight         = errorShift + 45
	CodePixelConversion       = errorShift + 50
	CodeInvalidPPMHeader      = errorShift + 51
	CodeInvalidPPMDepth       = errorShift + 52
	CodeInterrupted           = errorShift + 60
	CodeConverterProc         = errorShift + 70
	CodeUnexpected            = errorShift + 80

	// CodeKilled is the status a container runtime reports when its
	// process was SIGKILLed, most often by the OOM killer.
	CodeKilled = 128 + 9
	// CodeSignalKilled is the status of a direct child killed by SIGKILL.
	CodeSignalKilled = -9
)

// exitCodeMessages is the documented mapping from exit status to cause.
var exitCodeMessages = map[int]string{
	CodeUnspecified:           "Unspecified error",
	CodeFormatUnsupported:     "The document format is not supported",
	CodeFormatUnsupportedARM:  "HWP / HWPX formats are not supported in ARM architectures",
	CodeFormatUnsupportedQube: "HWP / HWPX formats are not supported in Qubes",
	CodeOfficeFailure:         "Conversion to PDF with LibreOffice failed",
	CodeInvalidImage:          "Invalid image conversion",
	CodePages:                 "Unspecified page error",
	CodeNoPageCount:           "Number of pages could not be extracted from the document",
	CodeMaxPages:              fmt.Sprintf("Number of pages must be between 1 and %d", MaxPages),
	CodeMaxPageWidth:          "A page exceeded the maximum width",
	CodeMaxPageHeight:         "A page exceeded the maximum height",
	CodePixelConversion:       "Error converting the document to pixels",
	CodeInvalidPPMHeader:      "Error converting the document to pixels (invalid PPM header)",
	CodeInvalidPPMDepth:       "Error converting the document to pixels (invalid PPM depth)",
	CodeInterrupted:           "Something interrupted the conversion and it could not be completed",
	CodeConverterProc:         "Error with the conversion process",
	CodeUnexpected:            "Some unexpected error occurred while converting the document",
	CodeKilled:                "The conversion process was killed, possibly because it ran out of memory",
	CodeSignalKilled:          "The conversion process was killed, possibly because it ran out of memory",
}

func exitCodeMessage(code int) string {
	if msg, ok := exitCodeMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error code '%d'", code)
}

// ErrorFromExitCode maps a child exit status to a ConversionError.
// CodeUnexpected and unmapped codes yield KindUnexpected.
func ErrorFromExitCode(code int) *ConversionError {
	kind := KindExitCode
	if _, ok := exitCodeMessages[code]; !ok || code == CodeUnexpected {
		kind = KindUnexpected
	}
	return &ConversionError{
		Kind:    kind,
		Code:    code,
		Message: exitCodeMessage(code),
	}
}
