package domain

// StakePosition is the reward bookkeeping of a staking account.
// The locked amount itself lives on Account.Locked.
type StakePosition struct {
	Account            string
	RewardCheckpoint   int64  // last settlement timestamp (ms)
	AccruedRewards     Amount // settled but unclaimed
	TotalRewardsEarned Amount // lifetime claimed rewards
	StakedSince        int64  // first stake timestamp (ms), 0 if never staked
}
