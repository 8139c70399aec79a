package common

const (
	// UsersPageSize is the default page size for the paginated user
	// directory. The cursor is the last-seen key of the ordered-by-key
	// query.
	UsersPageSize = 15

	// MessagesPageSize is the default page size for historical message
	// fetches. The cursor is the last-seen message id.
	MessagesPageSize = 20
)
