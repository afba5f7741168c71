package mock

import "errors"

func contractErr(err, target error) bool { return err != nil && errors.Is(err, target) }
