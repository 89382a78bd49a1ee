// Package sendingdomain manages a user's custom sending domain through the
// email provider's domain API.
//
// A domain moves unregistered -> registered -> verified. Remove returns it
// to unregistered from either later state.
package sendingdomain
