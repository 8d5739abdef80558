package private

type registerPeer struct {
	Address string `json:"address" validate:"required"`
}
