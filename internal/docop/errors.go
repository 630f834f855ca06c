package docop

import (
	"errors"

	"github.com/tabletquery/docop/pkg/docerrors"
)

var errMissingWriteResponse = docerrors.Internal(
	"write flush completed with no response",
	errors.New("storage session invoked the flush callback with an empty batch"),
)
