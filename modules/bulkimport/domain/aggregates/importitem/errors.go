package importitem

import "github.com/reclaim-hq/reclaim/pkg/serrors"

var (
	ErrItemInvalid = serrors.NewError(
		"ITEM_INVALID",
		"item was marked invalid at extraction time and cannot be reviewed",
		"BulkImport.Errors.ItemInvalid",
	)
	ErrDuplicateUnconfirmed = serrors.NewError(
		"DUPLICATE_UNCONFIRMED",
		"item has possible duplicates; confirm create-as-new before accepting",
		"BulkImport.Errors.DuplicateUnconfirmed",
	)
	ErrAmendmentsRequired = serrors.NewError(
		"AMENDMENTS_REQUIRED",
		"amend requires amended data",
		"BulkImport.Errors.AmendmentsRequired",
	)
	ErrUnknownAction = serrors.NewError(
		"UNKNOWN_ACTION",
		"unknown review action",
		"BulkImport.Errors.UnknownAction",
	)
	ErrNameRequired = serrors.NewFieldRequiredError(
		"name",
		"BulkImport.Errors.NameRequired",
	)
)
